// Package hace models the hash and crypto engine (HACE) as software sees it.
//
// The engine is a single register block plus a DMA-visible memory region.
// Software prepares a Context (accumulator, pending-data buffer, counters,
// HMAC pads) and a scatter/gather list in that region, programs the source,
// destination, context and length registers, writes a command word and polls
// the status register for completion.
//
// Key concepts:
//   - Context: the fixed-layout working state of one hash computation
//   - Memory: the shared DMA region holding the one hardware-visible Context
//     and the staging window
//   - Engine: the register block plus its Memory
//   - SoftEngine: a register-level model running SHA-1 and SHA-2 transforms
//
// The engine only ever transforms whole blocks. Buffering, padding and
// length encoding are the caller's job (see package digest).
package hace
