// Package commands implements every dot-command the shell accepts,
// adapted from the teacher's cmd/docdbsh/commands package but
// re-targeted at the kv engine's read/write/scan/transaction/snapshot
// surface instead of document CRUD.
package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/client"
	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/parser"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// Result is the outcome of executing one command.
type Result interface {
	Print(w io.Writer)
	IsExit() bool
}

type baseResult struct{}

func (baseResult) IsExit() bool { return false }

type ErrorResult struct {
	baseResult
	Err string
}

func (e ErrorResult) Print(w io.Writer) {
	fmt.Fprintln(w, "ERROR")
	fmt.Fprintln(w, e.Err)
}

type ExitResult struct{ baseResult }

func (e ExitResult) Print(w io.Writer) {}
func (e ExitResult) IsExit() bool      { return true }

type TextResult struct {
	baseResult
	Lines []string
}

func (t TextResult) Print(w io.Writer) {
	for _, l := range t.Lines {
		fmt.Fprintln(w, l)
	}
}

func text(lines ...string) TextResult { return TextResult{Lines: lines} }

func errf(format string, args ...interface{}) ErrorResult {
	return ErrorResult{Err: fmt.Sprintf(format, args...)}
}

// Shell is the subset of shell state commands need to read or mutate.
type Shell interface {
	GetDB() uint64
	SetDB(uint64)
	ClearDB()
	GetDBName() string
	SetDBName(string)
	GetCollection() kv.CollectionID
	SetCollection(kv.CollectionID)
	GetClient() Client
}

// Client is the subset of *client.Client commands call through.
type Client interface {
	OpenDB(name string) (uint64, error)
	CloseDB(dbID uint64) error
	Control(dbID uint64, request string) ([]byte, error)
	ListCollections(dbID uint64, snapshotID uint64) ([]client.CollectionInfo, error)
	CreateCollection(dbID uint64, name string, configBlob []byte) (kv.CollectionID, error)
	DropCollection(dbID uint64, id kv.CollectionID, mode kv.DropMode) error
	Read(dbID uint64, col kv.CollectionID, snapshotID uint64, keys []kv.Key) ([]client.ReadValue, error)
	Write(dbID uint64, col kv.CollectionID, keys []kv.Key, contents [][]byte) error
	Scan(dbID uint64, col kv.CollectionID, snapshotID uint64, start, end kv.Key, limit int) ([]kv.Key, error)
	Size(dbID uint64, col kv.CollectionID, start, end kv.Key) (kv.SizeEstimate, error)
}

func Help() Result {
	return text(
		"ustorekv shell commands:",
		"",
		"  .help                         show this help",
		"  .exit                         exit the shell",
		"  .open <name>                  open or create a database",
		"  .close                        close the current database",
		"  .info                         print database_control(\"info\")",
		"",
		"  .collections                  list collections",
		"  .create-collection <name>     create a collection",
		"  .drop-collection <id> [mode]  drop a collection (mode: values|all|handle)",
		"  .use <collection-id>          set the current collection",
		"",
		"  .read <key>                   read one key from the current collection",
		"  .write <key> <text>           write one key in the current collection",
		"  .delete <key>                 delete one key (write with no content)",
		"  .scan <start> <end> [limit]   scan a key range",
		"  .size <start> <end>           estimate a range's cardinality/bytes",
	)
}

func Exit() Result { return ExitResult{} }

func Open(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return errf("%v", err)
	}
	name := cmd.Args[0]
	id, err := sh.GetClient().OpenDB(name)
	if err != nil {
		return errf("open failed: %v", err)
	}
	sh.SetDB(id)
	sh.SetDBName(name)
	return text(fmt.Sprintf("opened %q (id=%d)", name, id))
}

func Close(sh Shell) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := sh.GetClient().CloseDB(sh.GetDB()); err != nil {
		return errf("close failed: %v", err)
	}
	sh.ClearDB()
	return text("closed")
}

func Info(sh Shell) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	data, err := sh.GetClient().Control(sh.GetDB(), "info")
	if err != nil {
		return errf("control failed: %v", err)
	}
	return text(string(data))
}

// ListCollections implements `.collections [snapshot_id]`: with no
// argument it lists as of the current head, matching spec.md §4.3's
// optional point-in-time qualifier on list_collections.
func ListCollections(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	var snapshotID uint64
	if len(cmd.Args) > 0 {
		id, err := parser.ParseUint64(cmd.Args[0])
		if err != nil {
			return errf("invalid snapshot id: %v", err)
		}
		snapshotID = id
	}
	cols, err := sh.GetClient().ListCollections(sh.GetDB(), snapshotID)
	if err != nil {
		return errf("list failed: %v", err)
	}
	lines := make([]string, 0, len(cols)+1)
	lines = append(lines, fmt.Sprintf("%d collection(s):", len(cols)))
	for _, c := range cols {
		lines = append(lines, fmt.Sprintf("  %d  %s", c.ID, c.Name))
	}
	return text(lines...)
}

func CreateCollection(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return errf("%v", err)
	}
	id, err := sh.GetClient().CreateCollection(sh.GetDB(), cmd.Args[0], nil)
	if err != nil {
		return errf("create-collection failed: %v", err)
	}
	return text(fmt.Sprintf("created collection %q (id=%d)", cmd.Args[0], id))
}

func DropCollection(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return errf("%v", err)
	}
	id, err := parser.ParseUint64(cmd.Args[0])
	if err != nil {
		return errf("invalid collection id: %v", err)
	}
	mode := kv.DropValuesOnly
	if len(cmd.Args) > 1 {
		switch strings.ToLower(cmd.Args[1]) {
		case "values":
			mode = kv.DropValuesOnly
		case "all":
			mode = kv.DropKeysAndValues
		case "handle":
			mode = kv.DropCollectionHandle
		default:
			return errf("unknown drop mode %q (want values|all|handle)", cmd.Args[1])
		}
	}
	if err := sh.GetClient().DropCollection(sh.GetDB(), kv.CollectionID(id), mode); err != nil {
		return errf("drop-collection failed: %v", err)
	}
	return text("dropped")
}

func Use(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return errf("%v", err)
	}
	id, err := parser.ParseUint64(cmd.Args[0])
	if err != nil {
		return errf("invalid collection id: %v", err)
	}
	sh.SetCollection(kv.CollectionID(id))
	return text(fmt.Sprintf("using collection %d", id))
}

func Read(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return errf("%v", err)
	}
	key, err := parser.ParseInt64(cmd.Args[0])
	if err != nil {
		return errf("invalid key: %v", err)
	}
	vals, err := sh.GetClient().Read(sh.GetDB(), sh.GetCollection(), 0, []kv.Key{kv.Key(key)})
	if err != nil {
		return errf("read failed: %v", err)
	}
	if !vals[0].Present {
		return text(fmt.Sprintf("%d: (missing)", key))
	}
	return text(fmt.Sprintf("%d: %s", key, string(vals[0].Value)))
}

func Write(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return errf("%v", err)
	}
	key, err := parser.ParseInt64(cmd.Args[0])
	if err != nil {
		return errf("invalid key: %v", err)
	}
	payload := strings.Join(cmd.Args[1:], " ")
	if err := sh.GetClient().Write(sh.GetDB(), sh.GetCollection(), []kv.Key{kv.Key(key)}, [][]byte{[]byte(payload)}); err != nil {
		return errf("write failed: %v", err)
	}
	return text("ok")
}

func Delete(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return errf("%v", err)
	}
	key, err := parser.ParseInt64(cmd.Args[0])
	if err != nil {
		return errf("invalid key: %v", err)
	}
	if err := sh.GetClient().Write(sh.GetDB(), sh.GetCollection(), []kv.Key{kv.Key(key)}, [][]byte{nil}); err != nil {
		return errf("delete failed: %v", err)
	}
	return text("ok")
}

func Scan(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return errf("%v", err)
	}
	start, err := parser.ParseInt64(cmd.Args[0])
	if err != nil {
		return errf("invalid start: %v", err)
	}
	end, err := parser.ParseInt64(cmd.Args[1])
	if err != nil {
		return errf("invalid end: %v", err)
	}
	limit := 100
	if len(cmd.Args) > 2 {
		l, err := strconv.Atoi(cmd.Args[2])
		if err != nil {
			return errf("invalid limit: %v", err)
		}
		limit = l
	}
	keys, err := sh.GetClient().Scan(sh.GetDB(), sh.GetCollection(), 0, kv.Key(start), kv.Key(end), limit)
	if err != nil {
		return errf("scan failed: %v", err)
	}
	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, fmt.Sprintf("%d key(s):", len(keys)))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %d", k))
	}
	return text(lines...)
}

func Size(sh Shell, cmd *parser.Command) Result {
	if err := parser.ValidateDB(sh.GetDB()); err != nil {
		return errf("%v", err)
	}
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return errf("%v", err)
	}
	start, err := parser.ParseInt64(cmd.Args[0])
	if err != nil {
		return errf("invalid start: %v", err)
	}
	end, err := parser.ParseInt64(cmd.Args[1])
	if err != nil {
		return errf("invalid end: %v", err)
	}
	est, err := sh.GetClient().Size(sh.GetDB(), sh.GetCollection(), kv.Key(start), kv.Key(end))
	if err != nil {
		return errf("size failed: %v", err)
	}
	return text(fmt.Sprintf("cardinality %d..%d, value bytes %d..%d, space %d..%d",
		est.MinCardinality, est.MaxCardinality, est.MinValueBytes, est.MaxValueBytes, est.MinSpaceUsage, est.MaxSpaceUsage))
}
