// Package privval implements the signature side of consensus: a file-based
// private validator that signs consensus messages with recoverable
// secp256k1 signatures, and the Recover helpers that turn a signature back
// into a voter address.
//
// The consensus core itself never touches keys. Its documented precondition
// is that a vote's signature has been recovered to the voter before
// VoteCollector.Vote is called; this package is the collaborator that
// satisfies it.
package privval
