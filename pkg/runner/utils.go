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

package runner

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/praetorian-inc/sshpubkey/pkg/hostkey"
	"github.com/praetorian-inc/sshpubkey/pkg/probe"
	"github.com/praetorian-inc/sshpubkey/pkg/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

func checkConfig(config cliConfig) error {
	if config.outputJSON && config.knownHosts {
		return errors.New("Only one output format can be specified (JSON or known_hosts)")
	}
	if config.timeout <= 0 {
		return errors.New("Timeout must be a positive number of milliseconds")
	}
	if config.clientVersion != "" {
		if err := wire.ValidateBanner(config.clientVersion); err != nil {
			return err
		}
	}
	return nil
}

func createProbeConfig(config cliConfig, keyType string) probe.Config {
	format := hostkey.FingerprintSHA256
	if config.md5 {
		format = hostkey.FingerprintMD5
	}
	return probe.Config{
		KeyType:           keyType,
		DefaultTimeout:    time.Duration(config.timeout) * time.Millisecond,
		ClientVersion:     config.clientVersion,
		FingerprintFormat: format,
	}
}

// newLogger logs to w at debug level when verbose, warnings only otherwise.
// Output that is not a terminal gets one JSON object per line.
func newLogger(w io.Writer, verbose bool, tty bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if !tty {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
