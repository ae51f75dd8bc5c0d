package undolog_test

import (
	"fmt"

	"github.com/hupe1980/undolog"
	"github.com/hupe1980/undolog/undo"
)

func Example() {
	p, err := undolog.NewPartition(0)
	if err != nil {
		panic(err)
	}
	defer p.Close()

	row := []byte("balance=100")

	q, err := p.Begin(1)
	if err != nil {
		panic(err)
	}
	before, err := q.Allocate(len(row))
	if err != nil {
		panic(err)
	}
	copy(before, row)
	q.Register(&undo.FuncAction{OnUndo: func() { copy(row, before) }}, nil)

	copy(row, "balance=250")
	fmt.Println(string(row))

	p.Undo(1)
	fmt.Println(string(row))
	// Output:
	// balance=250
	// balance=100
}
