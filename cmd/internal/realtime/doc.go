// Package realtime fans note change events out to notebook collaborators
// over WebSocket.
//
// The Hub is the in-process event bus: the notebook service publishes into
// it, connected clients subscribe per notebook. Delivery is best-effort; a
// slow client drops events rather than blocking writers. The gateway
// authenticates the handshake with an access token and checks read access on
// the notebook before subscribing.
package realtime
