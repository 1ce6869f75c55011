package judge

import (
	"log"
	"os/exec"
)

// Indexer is the optional semantic indexing collaborator. AutoIndex must
// never block or fail the store operation that triggered it.
type Indexer interface {
	AutoIndex(id string)
}

// ExecIndexer launches an external command with the learning id appended
// as the last argument and does not wait for it to finish.
type ExecIndexer struct {
	Command []string
}

// NewIndexer returns an ExecIndexer, or a no-op indexer when no command
// is configured.
func NewIndexer(command []string) Indexer {
	if len(command) == 0 {
		return NopIndexer{}
	}
	return &ExecIndexer{Command: command}
}

// AutoIndex fires the indexer command and forgets it. Launch failures are
// logged and swallowed.
func (x *ExecIndexer) AutoIndex(id string) {
	args := append(append([]string{}, x.Command[1:]...), id)
	cmd := exec.Command(x.Command[0], args...)
	if err := cmd.Start(); err != nil {
		log.Printf("semantic indexer unavailable, skipping index of %s: %v", id, err)
		return
	}
	// Release the child so it never becomes a zombie we'd have to reap.
	go func() { _ = cmd.Wait() }()
}

// NopIndexer is used when semantic indexing is not configured.
type NopIndexer struct{}

// AutoIndex does nothing.
func (NopIndexer) AutoIndex(string) {}
