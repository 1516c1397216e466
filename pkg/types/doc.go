/*
Package types documents the data model invariants that span packages:
  - a Cell belongs to exactly one Solution for its entire lifetime; a
    released Cell is never reactivated.
  - a Cell's QuantumSignature shares its first 10 characters with the
    owning Solution's QuantumSignature (enforced by pkg/security and
    checked by its tests).
  - a CellConfiguration's ConnectionMap is a directed graph over the cell
    types named in its CellSpecs; no dangling nodes.
  - LedgerBlock.Hash is a SHA-256 digest of the block's canonical body and
    begins with Difficulty zero digits; LedgerTransaction.TxSignature
    verifies against the transaction body (pkg/ledger).

See SPEC_FULL.md for the full data model and component design.
*/
package types
