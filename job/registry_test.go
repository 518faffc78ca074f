// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	ass := assert.New(t)
	r := NewRegistry()

	ass.Nil(r.RegisterSimple("simple", func() Job { return Base{} }))
	ass.NotNil(r.RegisterSimple("simple", func() Job { return Base{} }))
	ass.NotNil(r.Register(Definition{Type: "no-factory", Kind: KindSimple}))
	ass.NotNil(r.Register(Definition{Type: "static-without-frequency", Kind: KindStatic,
		New: func() Job { return Base{} }, Static: &StaticSpec{}}))
	ass.NotNil(r.Register(Definition{Type: "static-bad-cron", Kind: KindStatic,
		New: func() Job { return Base{} }, Static: &StaticSpec{Schedule: "61 * * * *"}}))
	ass.NotNil(r.Register(Definition{Type: "batch", Kind: KindBatch}))
	ass.NotNil(r.Register(Definition{Type: "service", Kind: KindService, Service: &ServiceSpec{}}))

	r.MustRegister(Definition{Type: "b-static", Kind: KindStatic,
		New: func() Job { return Base{} }, Static: &StaticSpec{Frequency: 1}})
	r.MustRegister(Definition{Type: "a-static", Kind: KindStatic,
		New: func() Job { return Base{} }, Static: &StaticSpec{Schedule: "@hourly"}})

	statics := r.Statics()
	ass.Len(statics, 2)
	ass.Equal("a-static", statics[0].Type)
	ass.Equal("b-static", statics[1].Type)
	ass.Equal([]string{"a-static", "b-static", "simple"}, r.Types())

	_, err := r.NewJob("unknown")
	ass.NotNil(err)
	j, err := r.NewJob("simple")
	ass.Nil(err)
	ass.Equal(Base{}, j)
}

func TestServiceJobDispatchesByAction(t *testing.T) {
	ass := assert.New(t)
	r := NewRegistry()
	var called string
	r.MustRegister(Definition{Type: "svc", Kind: KindService, Service: &ServiceSpec{
		Methods: map[string]ServiceMethod{
			"ping": func(ctx *Context) error { called = "ping"; return nil },
			"pong": func(ctx *Context) error { called = "pong"; return nil },
		},
	}})

	j, err := r.NewJob("svc")
	ass.Nil(err)
	ctx := &Context{Action: "pong"}
	ass.Nil(j.Validate(ctx))
	ass.Nil(j.Execute(ctx))
	ass.Equal("pong", called)

	j, _ = r.NewJob("svc")
	err = j.Validate(&Context{Action: "missing"})
	ass.True(IsRejected(err))
}
