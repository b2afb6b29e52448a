// Package batch writes record slices in fixed-size transactional chunks. A
// chunk that fails to commit is rolled back and its records are retried one
// per transaction so a single bad row cannot sink its neighbours.
package batch
