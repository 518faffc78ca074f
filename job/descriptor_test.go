// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/ptr"
)

func newTestRegistry(t *testing.T) *Registry {
	r := NewRegistry()
	assert.Nil(t, r.Register(Definition{
		Type: "sync-account", Kind: KindSimple, Priority: 3, Token: "account-{accountId}",
		New: func() Job { return Base{} },
	}))
	assert.Nil(t, r.Register(Definition{
		Type: "mailer", Kind: KindService,
		Service: &ServiceSpec{Methods: map[string]ServiceMethod{
			"send": func(ctx *Context) error { return nil },
		}},
	}))
	return r
}

func TestDescriptorResolve(t *testing.T) {
	ass := assert.New(t)
	r := newTestRegistry(t)

	res, err := Descriptor{Type: "sync-account", Inputs: map[string]any{"accountId": float64(42)}}.Resolve(r)
	ass.Nil(err)
	ass.Equal("account-42", res.Token)
	ass.Equal(int32(3), res.Priority)
	ass.False(res.Static)

	res, err = Descriptor{
		Type: "sync-account", Priority: ptr.Any(int32(-1)), Token: ptr.Any("global"), Frequency: 5,
	}.Resolve(r)
	ass.Nil(err)
	ass.Equal("global", res.Token)
	ass.Equal(int32(-1), res.Priority)
	ass.True(res.Static)

	res, err = Descriptor{Type: "mailer", Action: "send", Schedule: "*/5 * * * *"}.Resolve(r)
	ass.Nil(err)
	ass.True(res.Static)
	ass.Equal("", res.Token)
}

func TestDescriptorResolveRejects(t *testing.T) {
	r := newTestRegistry(t)
	cases := map[string]Descriptor{
		"missing type":    {},
		"unknown type":    {Type: "nope"},
		"empty token":     {Type: "sync-account", Token: ptr.Any(" "), Inputs: map[string]any{"accountId": 1}},
		"missing input":   {Type: "sync-account"},
		"negative freq":   {Type: "sync-account", Frequency: -1, Token: ptr.Any("x")},
		"bad schedule":    {Type: "sync-account", Schedule: "every day", Token: ptr.Any("x")},
		"unknown method":  {Type: "mailer", Action: "fax"},
		"negative maxTry": {Type: "mailer", Action: "send", MaxTry: -2},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Resolve(r)
			assert.True(t, IsValidationError(err), "%v", err)
		})
	}
}

func TestRenderToken(t *testing.T) {
	ass := assert.New(t)

	token, err := RenderToken("{a}-{b}-{a}", map[string]any{"a": "x", "b": true})
	ass.Nil(err)
	ass.Equal("x-true-x", token)

	token, err = RenderToken("plain", nil)
	ass.Nil(err)
	ass.Equal("plain", token)

	_, err = RenderToken("{missing}", map[string]any{})
	ass.True(IsValidationError(err))
}
