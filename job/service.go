// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

// ServiceMethod is one callable operation of a service job
type ServiceMethod func(ctx *Context) error

// serviceJob dispatches Execute to the method named by the task action
type serviceJob struct {
	Base
	service string
	methods map[string]ServiceMethod
	method  ServiceMethod
}

func (s *serviceJob) Validate(ctx *Context) error {
	method, ok := s.methods[ctx.Action]
	if !ok || method == nil {
		return Reject("service %v has no method %q", s.service, ctx.Action)
	}
	s.method = method
	return nil
}

func (s *serviceJob) Execute(ctx *Context) error {
	if s.method == nil {
		if err := s.Validate(ctx); err != nil {
			return err
		}
	}
	return s.method(ctx)
}
