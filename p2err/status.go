// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package p2err defines the flat status-code taxonomy returned by every
// kernel call. There are no exceptions: every operation that can fail
// returns one of these codes instead of (or, for Go ergonomics, in
// addition to implementing) an error.
package p2err

import "fmt"

// Status is a call's outcome. The zero value, None, means success.
//
// The numeric values match the original pSOS+-on-pthreads implementation's
// ULONG status words, because the external contract is binary-compatible
// at source level (callers switch on the numeric code, not just the Go
// constant name).
type Status uint32

// Error implements the error interface so a Status can be returned or
// wrapped anywhere idiomatic Go expects one, without giving up the raw
// status word callers of the historical API still want.
func (s Status) Error() string {
	if msg, ok := messages[s]; ok {
		return msg
	}
	return fmt.Sprintf("p2err: unknown status 0x%02x", uint32(s))
}

// OK reports whether s represents success.
func (s Status) OK() bool { return s == None }

// Generic statuses.
const (
	None             Status = 0x00
	Timeout          Status = 0x01
	InvalidNode      Status = 0x04
	ObjectDeleted    Status = 0x05
	ObjectTableFull  Status = 0x08
	ObjectNotFound   Status = 0x09
)

// Task statuses.
const (
	InvalidPriority  Status = 0x11
	AlreadyActive    Status = 0x12
	AlreadySuspended Status = 0x14
	NotSuspended     Status = 0x15
	InvalidRegister  Status = 0x17
)

// Event status.
const (
	NoEvents Status = 0x3C
)

// Partition statuses. Note PartitionBufferSize shares no numeric value
// with the message-queue family's BufferSize below; both are called
// "buffer-size-error" in spec.md but the original source assigns them
// distinct codes per family, and that distinction is preserved.
const (
	PartitionBufferSize  Status = 0x29
	BufferInUse          Status = 0x2B
	NoBuffer             Status = 0x2C
	InvalidBufferAddress Status = 0x2D
	BufferAlreadyFree    Status = 0x2F
)

// Message queue statuses (fixed and variable-length families).
const (
	MessageSize          Status = 0x31
	BufferSize           Status = 0x32
	NoQueueControlBlock  Status = 0x33
	NoMessageBuffer      Status = 0x34
	QueueFull            Status = 0x35
	QueueKilled          Status = 0x36
	NoMessage            Status = 0x37
	TasksAtQueueDelete   Status = 0x38
	MessagesAtQueueDelete Status = 0x39
)

// Semaphore statuses.
const (
	NoSemaphoreControlBlock Status = 0x41
	NoSemaphore             Status = 0x42
	SemaphoreKilled         Status = 0x43
	TasksAtSemaphoreDelete  Status = 0x44
)

var messages = map[Status]string{
	None:                    "no error",
	Timeout:                 "timeout",
	InvalidNode:             "invalid node",
	ObjectDeleted:           "object deleted",
	ObjectTableFull:         "object table full",
	ObjectNotFound:          "object not found",
	InvalidPriority:         "invalid priority",
	AlreadyActive:           "task already active",
	AlreadySuspended:        "task already suspended",
	NotSuspended:            "task not suspended",
	InvalidRegister:         "invalid register number",
	NoEvents:                "no matching events",
	PartitionBufferSize:     "invalid partition block size",
	BufferInUse:             "buffer in use",
	NoBuffer:                "no buffer available",
	InvalidBufferAddress:    "invalid buffer address",
	BufferAlreadyFree:       "buffer already free",
	MessageSize:             "message too large",
	BufferSize:              "receive buffer too small",
	NoQueueControlBlock:     "no queue control block available",
	NoMessageBuffer:         "no message buffer available",
	QueueFull:               "queue full",
	QueueKilled:             "queue deleted",
	NoMessage:               "no message available",
	TasksAtQueueDelete:      "tasks were pending at queue delete",
	MessagesAtQueueDelete:   "messages remained at queue delete",
	NoSemaphoreControlBlock: "no semaphore control block available",
	NoSemaphore:             "no semaphore token available",
	SemaphoreKilled:         "semaphore deleted",
	TasksAtSemaphoreDelete:  "tasks were pending at semaphore delete",
}
