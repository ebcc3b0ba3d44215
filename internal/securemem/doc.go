// Package securemem provides fixed-size buffers for key material.
//
// Every Buffer is backed by a memguard LockedBuffer (mlocked, guarded and
// wiped on release) and is accounted against one process-wide secure heap
// of TotalSecureHeapSize bytes. The heap is shared by all accounts and
// sessions in the process. It is initialised lazily on the first allocation
// and torn down by Shutdown, which callers run once at process exit.
//
// Buffers are single-owner and never copied implicitly; Clone is the only
// way to duplicate secret bytes.
package securemem
