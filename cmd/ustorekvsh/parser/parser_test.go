package parser

import "testing"

func TestParseBasic(t *testing.T) {
	cmd, err := Parse(".write 5 hello world")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Name != ".write" {
		t.Errorf("Name = %q", cmd.Name)
	}
	if len(cmd.Args) != 3 || cmd.Args[0] != "5" {
		t.Errorf("Args = %v", cmd.Args)
	}
}

func TestParseRequiresDotPrefix(t *testing.T) {
	if _, err := Parse("write 5 hello"); err == nil {
		t.Fatal("expected error for command without '.' prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatal("expected error for empty line")
	}
}

func TestValidateArgs(t *testing.T) {
	cmd := &Command{Name: ".read", Args: []string{"1"}}
	if err := ValidateArgs(cmd, 2); err == nil {
		t.Fatal("expected error for too few args")
	}
	if err := ValidateArgs(cmd, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDB(t *testing.T) {
	if err := ValidateDB(0); err == nil {
		t.Fatal("expected error for db id 0")
	}
	if err := ValidateDB(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
