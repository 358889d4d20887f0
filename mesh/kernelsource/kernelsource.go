// Package kernelsource represents the engine's view of a compiled kernel
// (spec §6 "DSL/kernel source"): a device handle plus the declared field
// names it reads and writes. The engine dispatches kernels by this
// declaration alone; it never parses a kernel's source language.
package kernelsource

import (
	"context"

	"github.com/fedres/fluidloom-sub000/mesh/dag"
	"github.com/fedres/fluidloom-sub000/mesh/devicebackend"
)

// CompiledKernel binds a device-backend handle to the field names it
// declares as read/write, so a dag.Node's hazard analysis can be derived
// without inspecting kernel source.
type CompiledKernel struct {
	Name        string
	Handle      devicebackend.KernelHandle
	ReadFields  []string
	WriteFields []string
}

// Compile compiles source on backend and returns a CompiledKernel declaring
// the given read/write field sets.
func Compile(backend devicebackend.Backend, name, source string, readFields, writeFields []string) (CompiledKernel, error) {
	h, err := backend.CompileKernel(source)
	if err != nil {
		return CompiledKernel{}, err
	}
	return CompiledKernel{
		Name:        name,
		Handle:      h,
		ReadFields:  readFields,
		WriteFields: writeFields,
	}, nil
}

// Node builds a dag.Node for k, ready for hazard analysis and scheduling.
func (k CompiledKernel) Node(haloDepth uint8, level int8) *dag.Node {
	return &dag.Node{
		Name:        k.Name,
		Kind:        dag.KindKernel,
		ReadFields:  k.ReadFields,
		WriteFields: k.WriteFields,
		HaloDepth:   haloDepth,
		Level:       level,
	}
}

// Launch returns a dag.Launch that blocks until every event in waitFor has
// completed and then runs k on backend with args.
func Launch(backend devicebackend.Backend, k CompiledKernel, args []devicebackend.Arg) dag.Launch {
	return func(ctx context.Context, n *dag.Node, waitFor []dag.Event) (dag.Event, error) {
		for _, ev := range waitFor {
			<-ev.Done()
		}
		err := backend.LaunchKernel(k.Handle, args)
		return dag.NewImmediateEvent(err), err
	}
}
