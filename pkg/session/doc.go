/*
Package session serializes concurrent access to trees.

Every write to a tree, whether a batch of submitted patches or a snapshot save,
runs under a per-tree lock. Locks are reference counted so idle trees do not
leak entries, and an optional distributed locker extends the guarantee across
replicas sharing one store.
*/
package session
