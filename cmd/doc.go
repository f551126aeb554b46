/*
Package cmd implements the xio command line interface.

	xio serve   starts an echo server on one of the transports
	xio hello   sends greetings to a server and prints the replies
	xio bench   measures throughput and round trip times of a server

Every flag can also be set as an environment variable XIO_<FLAG> (e.g. XIO_POOL_CAPACITY=64),
.env and .env.local in the working directory are loaded first.
*/
package cmd
