// Package rules is the restricted interpreter for code stored in the ledger.
//
// Stored code is a CEL expression, never arbitrary host code. A function
// span's code evaluates over an "input" map and yields the execution output;
// a policy span's code evaluates over a "span" map and yields a list of
// declarative actions. The only supported action kind is emitting a derived
// span - the Action type is a closed variant, so new kinds are additions to
// an enumeration, not ad hoc field sniffing.
//
// Compiled programs are cached per expression. Evaluation honors the
// caller's context deadline.
package rules
