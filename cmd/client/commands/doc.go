// Package commands defines the ledger client CLI.
//
// Commands
//
//   - keygen         Create a party secret or a gateway signing seed
//   - party          Register, show and list messages of parties
//   - append         Append an ISO 20022 document to a ticket
//   - chain          Print a ticket's messages in chain order
//   - root, state    Show the current commitment and ticket state
//   - proof, verify  Fetch and check inclusion proofs
//   - open           Decrypt a message with a local secret and check it
//   - watch          Interactive inbox of incoming messages
//
// Secrets never leave the machine unless a party is registered with one;
// open, verify and watch check digests and proofs locally rather than
// trusting the gateway's answer.
package commands
