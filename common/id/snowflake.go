package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Each process
// variant (continuous engine, one-shot runner) uses a distinct node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered unique int64 ID. Used for cycle and
// attempt identifiers.
func New() int64 {
	return node.Generate().Int64()
}
