// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package testutil

import (
	"net"
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	waitMaxRetry   = 200
	waitRetrySleep = time.Millisecond * 25
)

// Fataler is implemented by both *testing.T and *check.C.
type Fataler interface {
	Fatal(args ...interface{})
}

// WaitUntil repeatly evaluates f() for a period of time, util it returns true.
func WaitUntil(t Fataler, f func() bool) {
	for i := 0; i < waitMaxRetry; i++ {
		if f() {
			return
		}
		time.Sleep(waitRetrySleep)
	}
	t.Fatal("wait timeout")
}

var (
	testAddrMutex sync.Mutex
	testAddrMap   = make(map[string]struct{})
)

// AllocAddr allocates a local host:port for testing.
func AllocAddr() string {
	for i := 0; i < 10; i++ {
		if addr := tryAllocTestAddr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Fatal("failed to alloc test address")
	return ""
}

func tryAllocTestAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal("listen failed", zap.Error(err))
	}
	addr := l.Addr().String()
	if err = l.Close(); err != nil {
		log.Fatal("close failed", zap.Error(err))
	}

	testAddrMutex.Lock()
	defer testAddrMutex.Unlock()
	if _, ok := testAddrMap[addr]; ok {
		return ""
	}
	testAddrMap[addr] = struct{}{}
	return addr
}
