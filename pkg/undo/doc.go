/*
Package undo records graph mutations as reversible operations and submits
them to the sync authority.

Every mutation funnels through Engine.Record as a (patch, inverse) pair. Pairs
recorded inside BeginGroup/EndGroup become one Operation; pairs recorded
outside a group are committed on their own. Committing submits the patches
to the authority, rolls back locally whatever it rejected and pushes what
remains onto a bounded History. Undo and Redo replay the inverses and the
patches through the same path.

The engine is a small state machine:

	Idle -> Grouping -> Submitting -> Idle

Recording is refused while a submission is in flight.
*/
package undo
