/*
Package ports defines the driven ports (interfaces) of the thicket editor.

These interfaces decouple the graph and the undo engine from external
implementations, allowing the editor to work with various storage backends,
sync authorities and canvas views.

# Key Interfaces

  - Authority: the authoritative service that accepts or rejects submitted patches.
  - TreeSource / TreeStore: read and persist tree snapshots (file, redis, postgres, loam).
  - ViewProvider: the canvas transform restored by undo and redo.
  - DistributedLocker: serialises submissions for one tree across replicas.
  - Broadcaster: fans accepted patches out to other editors.
*/
package ports
