package platform

import "sync"

// At-fork hook registry.
//
// Go has no pthread_atfork. Programs that fork through os/exec never need
// these hooks (the child immediately execs), but an embedding runtime that
// performs a raw fork must quiesce the pool mutex around it or the child
// can inherit a locked mutex. Such a runtime calls BeforeFork /
// AfterForkInParent / AfterForkInChild around the fork; the pool registers
// its lock/unlock triple here during init when InstallForkHandlers is set.
var (
	atforkMu sync.Mutex
	prepare  []func()
	parent   []func()
	child    []func()
)

// InstallForkHandlers registers a prepare/parent/child hook triple.
//
// prepareFn runs (in registration order) before a fork, parentFn and
// childFn run on the respective side after it. Nil hooks are allowed.
func InstallForkHandlers(prepareFn, parentFn, childFn func()) {
	atforkMu.Lock()
	defer atforkMu.Unlock()
	if prepareFn != nil {
		prepare = append(prepare, prepareFn)
	}
	if parentFn != nil {
		parent = append(parent, parentFn)
	}
	if childFn != nil {
		child = append(child, childFn)
	}
}

// BeforeFork runs all registered prepare hooks. Call immediately before a
// raw fork.
func BeforeFork() {
	atforkMu.Lock()
	hooks := prepare
	atforkMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// AfterForkInParent runs all registered parent hooks. Call in the parent
// immediately after a raw fork.
func AfterForkInParent() {
	atforkMu.Lock()
	hooks := parent
	atforkMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// AfterForkInChild runs all registered child hooks. Call in the child
// immediately after a raw fork.
//
// The registry is read without taking atforkMu: in the child only the
// forking thread survives, and another thread may have died holding the
// lock. The slice header is safe to read because registration happens
// during init, before any fork.
func AfterForkInChild() {
	for _, fn := range child {
		fn()
	}
}
