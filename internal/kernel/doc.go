// Package kernel defines the execution contract for booted code and the
// built-in kernels that run under it.
//
// A kernel never touches the store or the loader directly. It receives a
// Context carrying exactly the capabilities the contract names: ledger
// append and tenant-scoped reads, a clock, an identifier generator, hash
// and signature primitives, the caller-supplied environment, and a Boot
// re-entry function that passes through the same trust gate as any
// external caller. There are no ambient globals; a kernel's target is
// threaded through its environment.
package kernel
