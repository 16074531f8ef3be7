// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sshutils

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Send writes all of data to w.
func Send(w io.Writer, data []byte) error {
	length, err := w.Write(data)
	if err != nil {
		return &TransportError{Info: "failed to send out packet", WrappedError: err}
	}
	if length < len(data) {
		return &TransportError{
			Info: fmt.Sprintf(
				"failed to write all bytes (%d bytes written, %d bytes expected)",
				length,
				len(data),
			),
		}
	}
	return nil
}

// RecvFull fills buf from r. A stream that ends early is reported as a
// closed connection.
func RecvFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		return RecvError(err)
	}
	return nil
}

// RecvError classifies an error returned by a read on the stream.
func RecvError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &TransportError{Info: "connection closed by peer", WrappedError: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Info: "timed out waiting for data", WrappedError: err}
	}
	return &TransportError{Info: "failed to receive packet", WrappedError: err}
}
