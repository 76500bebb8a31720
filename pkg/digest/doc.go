// Package digest implements incremental SHA-1/SHA-2 digests and HMAC on the
// hash engine.
//
// A Controller owns the engine handle and a context provider and exposes the
// primitives the state machines compose: starting a transform, seeding the
// IV, absorbing HMAC keys and padding the final block. Every context access
// goes through the provider, so a provider.Multi can switch sessions
// underneath.
//
// Two flavors of the init -> update* -> finalize|cancel machine exist:
//   - Scoped (InitScoped, InitScopedHMAC): borrows the controller. Any later
//     borrow or move of the controller invalidates it.
//   - Owned (Init, InitHMAC): takes the controller over. Update returns the
//     successor context, Finalize and Cancel hand the controller back.
//     Suspend and Resume park a running computation in its provider slot
//     and lend the controller out between calls.
//
// A failed Update or Finalize poisons the computation: later Update and
// Finalize calls return ErrContextPoisoned, while Cancel and Suspend still
// work so the slot and key material can be cleaned up.
//
// Go cannot forbid reuse of a consumed value, so consumed contexts and moved
// controller handles are tombstoned and return ErrContextConsumed or
// ErrControllerMoved.
package digest
