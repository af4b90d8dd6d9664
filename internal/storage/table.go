package storage

import (
	"github.com/google/btree"

	"github.com/sajjad-MoBe/logkv/internal/command"
)

// Table is the in-memory key-value state. It is not synchronized: the
// owning store serializes every call.
type Table struct {
	tree *btree.BTree
}

type item struct {
	key   string
	value string
}

func (i *item) Less(than btree.Item) bool {
	return i.key < than.(*item).key
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{
		tree: btree.New(32),
	}
}

// Get retrieves the value stored for key
func (t *Table) Get(key string) (string, bool) {
	found := t.tree.Get(&item{key: key})
	if found == nil {
		return "", false
	}
	return found.(*item).value, true
}

// Set stores value for key, overwriting any previous value
func (t *Table) Set(key, value string) {
	t.tree.ReplaceOrInsert(&item{key: key, value: value})
}

// Del removes key and reports whether it was present
func (t *Table) Del(key string) bool {
	return t.tree.Delete(&item{key: key}) != nil
}

// Apply mutates the table with a SET or DEL entry without logging it.
// Other commands are ignored.
func (t *Table) Apply(cmd command.Command) {
	switch cmd.Op {
	case command.OpSet:
		t.Set(cmd.Key, cmd.Value)
	case command.OpDel:
		t.Del(cmd.Key)
	}
}

// Len returns the number of keys
func (t *Table) Len() int {
	return t.tree.Len()
}

// Ascend calls fn for each pair in key order until fn returns false
func (t *Table) Ascend(fn func(key, value string) bool) {
	t.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		return fn(it.key, it.value)
	})
}
