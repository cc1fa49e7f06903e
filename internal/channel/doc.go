// Package channel implements the Subspace shared-memory channel core: the
// control-block layout, slot lifecycle, allocation policy and reliability
// protocol that let publishers and subscribers in different processes
// exchange fixed-layout messages through a POSIX shared-memory region
// without copying and without corrupting each other's view of it.
//
// A channel is backed by three shared-memory objects: a Channel Control
// Block (CCB) holding the slot table and its three intrusive lists, a flat
// buffer region holding the raw message bytes, and a System Control Block
// (SCB) shared across all channels on a server holding lock-free update
// counters. All three are mapped at independent virtual addresses in each
// participant process, so every cross-slot reference inside the CCB is a
// byte offset from the CCB's own base address rather than a pointer.
package channel
