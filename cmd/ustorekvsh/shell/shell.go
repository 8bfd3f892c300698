// Package shell holds the REPL's mutable state (current database,
// current collection) and dispatches parsed commands, adapted from
// the teacher's cmd/docdbsh/shell package.
package shell

import (
	"fmt"
	"sync"

	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/client"
	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/commands"
	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/parser"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

type Shell struct {
	socketPath string
	dbID       uint64
	dbName     string
	collection kv.CollectionID
	client     *client.Client
	mu         sync.Mutex
}

func NewShell(socketPath string) *Shell {
	return &Shell{socketPath: socketPath, client: client.New(socketPath)}
}

func (s *Shell) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Connect()
}

func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}

func (s *Shell) GetDB() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbID
}

func (s *Shell) SetDB(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbID = id
}

func (s *Shell) ClearDB() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbID = 0
	s.dbName = ""
	s.collection = kv.DefaultCollectionID
}

func (s *Shell) GetDBName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbName
}

func (s *Shell) SetDBName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbName = name
}

func (s *Shell) GetCollection() kv.CollectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection
}

func (s *Shell) SetCollection(id kv.CollectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = id
}

func (s *Shell) GetClient() commands.Client {
	return s.client
}

// Prompt renders the current database/collection context.
func (s *Shell) Prompt() string {
	name := s.GetDBName()
	if name == "" {
		return "> "
	}
	return fmt.Sprintf("%s[%d]> ", name, s.GetCollection())
}

func (s *Shell) Execute(cmd *parser.Command) commands.Result {
	switch cmd.Name {
	case ".help":
		return commands.Help()
	case ".exit":
		return commands.Exit()
	case ".open":
		return commands.Open(s, cmd)
	case ".close":
		return commands.Close(s)
	case ".info":
		return commands.Info(s)
	case ".collections":
		return commands.ListCollections(s, cmd)
	case ".create-collection":
		return commands.CreateCollection(s, cmd)
	case ".drop-collection":
		return commands.DropCollection(s, cmd)
	case ".use":
		return commands.Use(s, cmd)
	case ".read":
		return commands.Read(s, cmd)
	case ".write":
		return commands.Write(s, cmd)
	case ".delete":
		return commands.Delete(s, cmd)
	case ".scan":
		return commands.Scan(s, cmd)
	case ".size":
		return commands.Size(s, cmd)
	default:
		return commands.ErrorResult{Err: fmt.Sprintf("unknown command: %s", cmd.Name)}
	}
}
