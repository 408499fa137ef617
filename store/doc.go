// Package store provides the family directory's DynamoDB data access layer.
//
// The store addresses four tables: members, family units, change tokens and
// unique constraints. It has no foreign keys, so every cross-item rule is
// expressed as a condition on a transaction item and the whole set of items
// commits atomically or not at all.
//
// # Transactions
//
// Build a [Tx] with its typed builder methods. Each method returns the item's
// index, and a cancelled transaction returns a [*TxError] carrying that index:
//
//	tx := store.NewTx()
//	spouseIdx := tx.SetSpouse(familyID, spouse.ID)
//	tx.CreateMember(spouse)
//	err := s.Transact(ctx, tx)
//	if store.FailedOp(err) == spouseIdx {
//	    // the unit already had a spouse
//	}
//
// Conditions carried by the builders:
//
//   - CreateMember / CreateFamily / CreateToken / PutLatest: item must not exist
//   - ReplaceMember: stored version equals the observed version
//   - DeleteFamily: unit exists with no spouse and no descendants
//   - SetSpouse: unit exists without a spouse
//   - AppendDescendant: server-side list_append, id not already listed
//   - RemoveDescendant: observed index still holds the id
//   - ClaimEmail / ReleaseEmail: the constraint is free or owned by the member
//   - LinkToken: token exists and has no next yet
//   - AdvanceLatest: LATEST.next still equals the observed previous token
//
// # Configuration
//
// Use [DefaultConfig] and override table names per environment:
//
//	cfg := store.DefaultConfig()
//	cfg.MembersTable = "prod_members"
//
// # Errors
//
//   - [ErrNotFound] - item doesn't exist or its TTL elapsed
//   - [ErrConditionFailed] - a transaction item's condition did not hold
//   - [ErrTransactionConflict] - a concurrent transaction held an item; safe to retry
//   - [ErrTooManyItems] - more items than Config.MaxTransactItems
//   - [ErrDuplicateItem] - two items address the same record
package store
