// thefox is a lightweight message bus providing remote method
// invocation between processes.
//
// (c) 2024, xrw67.
// Use of this source is governed by MIT license that
// can be found in the LICENSE file.

/*
Package thefox unites two small building blocks:

  - bus -- a message bus server and client. Clients register named
    methods on the server and call each other's methods over a framed
    binary TCP protocol, synchronously or asynchronously.

  - httpc -- plain HTTP GET/POST helpers for one-shot
    request/response exchanges.

These packages are intentionally tiny. They aren't a replacement for
an enterprise-grade broker or RPC framework; they cover the cases
where a process just needs to expose a handful of methods to its
peers with no extra infrastructure around.
*/
package thefox
