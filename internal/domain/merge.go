package domain

// MergeTransactions reconciles a server-side and a client-side transaction
// list into one authoritative list.
//
// The rule is deliberately simple: the server wins unconditionally for any
// id it already holds (no field-level merge, no conflict detection — a
// client edit to a record that also changed server-side is dropped). Client
// entries whose id the server has never seen are appended and marked
// synced, since the merged result is what the server will store.
//
// Ordering: server entries first in server order, then client-only entries
// in client order.
func MergeTransactions(server, client []Transaction) []Transaction {
	merged := make([]Transaction, 0, len(server)+len(client))
	seen := make(map[string]struct{}, len(server))

	for _, t := range server {
		merged = append(merged, t.Clone())
		seen[t.ID] = struct{}{}
	}
	for _, t := range client {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		c := t.Clone()
		c.MarkConfirmed()
		merged = append(merged, c)
	}
	return merged
}
