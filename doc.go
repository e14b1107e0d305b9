package tinydur

/*
TinyDUR is a prototype of Deferred Update Replication, intended for teaching and experimentation. It is not suitable for
production use: there is no persistence and no fault tolerance.

A transaction executes entirely at its client. Reads go to any replica (or to the client's own buffered writes) and are
recorded in a read set; writes are buffered in a write set. At commit the client ships both sets to the sequencer, which
stamps a strictly increasing transaction id and broadcasts the transaction to every replica. Each replica certifies the
transactions in id order: a transaction commits only if every key it read from a replica still has the version it saw,
and then its writes are applied. Because all replicas see the same transactions in the same order and run the same
deterministic test, they converge.

Building TinyDUR produces three executables: tinydur-server (one replica, `kv/main.go`), sequencer-server
(`scheduler/cmd/sequencer-server`) and dur-ctl (`tools/dur-ctl`), a command line client.

The `tinydur` module is organized into the following packages:

* `kv`: the replica: versioned store, message codec, certification, admin HTTP API.
* `scheduler`: the sequencer and its transaction id allocator.
* `client`: the transaction client library.
* `pkg`: logging, configuration and test helpers shared by the above.
*/
