// Package transmission provides an RPC client for the Transmission daemon.
//
// # Overview
//
// The client speaks Transmission's JSON-over-HTTP control protocol. Every call
// is a POST to /transmission/rpc with a body of the form
//
//	{"method": "torrent-get", "arguments": {...}, "tag": 7}
//
// and the daemon answers with {"result": "success", "arguments": {...}}. Any
// other result string means the daemon understood the request and refused it.
//
// # Session Tokens
//
// Transmission guards its endpoint with the X-Transmission-Session-Id header.
// A request without a current token is answered with 409 Conflict and the new
// token in the response header. The client stores the token and replays the
// call exactly once. A 401 (bad credentials) is handled the same way, so a
// second rejection in a row surfaces as an Error with KindAuth.
//
// # Retries
//
// Network failures are retried with github.com/avast/retry-go, at most twice,
// with a short exponential backoff. Reads (session-get, session-stats,
// torrent-get, free-space) are always safe to replay. Mutations are replayed
// only when the request provably never left the process: the dial failed, or
// the httptrace WroteRequest hook never fired. A mutation that may have
// reached the daemon fails with KindAmbiguous instead, so the caller can
// re-read state before deciding what to do.
//
// # Errors
//
// Two error types cover every failure:
//
//   - *Error: transport-level failure with a Kind (Timeout, ConnectionRefused,
//     Auth, Ambiguous, Protocol). Match with errors.Is against ErrTimeout and
//     friends, or errors.As for the details.
//   - *RPCError: the daemon answered but refused the request.
//
// # Usage
//
//	client, err := transmission.NewClient(transmission.Config{Host: "127.0.0.1", Port: 9091})
//	if err != nil {
//		return err
//	}
//	torrents, err := client.TorrentGet(ctx, nil, transmission.TorrentFields)
package transmission
