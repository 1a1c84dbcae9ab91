// thefox is a lightweight message bus providing remote method
// invocation between processes.
//
// (c) 2024, xrw67.
// Use of this source is governed by MIT license that
// can be found in the LICENSE file.

/*
Package bus implements the client/server RPC fabric of thefox.

A Server accepts connections from many clients. Any connected client
may register named methods on the bus, and any client may call a
method registered by another one, synchronously with Call or
asynchronously with ACall. Requests and responses are correlated by a
request id and multiplexed over the client's single connection, so
responses may arrive in any order.

The bus stores nothing: every call yields exactly one response or one
failure, there is no persistence, replay or routing between servers.
*/
package bus
