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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/praetorian-inc/sshpubkey/pkg/hostkey"
	"github.com/praetorian-inc/sshpubkey/pkg/negotiate"
	"github.com/praetorian-inc/sshpubkey/pkg/probe"
)

type outputFormat string

const (
	JSON        outputFormat = "JSON"
	KNOWN_HOSTS outputFormat = "KNOWN_HOSTS"
	DEFAULT     outputFormat = "DEFAULT"
)

type dataEntry struct {
	Host          string                `json:"host"`
	ServerVersion string                `json:"serverVersion"`
	Algorithms    *negotiate.Algorithms `json:"algorithms,omitempty"`
	HostKey       *hostkey.HostKey      `json:"hostKey"`
}

// Report writes the host key line to stdout, or to the output file when
// one was given.
func Report(stdout io.Writer, result *probe.Result) error {
	var outputFormat = DEFAULT
	w := stdout

	if len(config.outputFile) > 0 {
		writeFile, err := os.Create(config.outputFile)
		if err != nil {
			return err
		}
		defer writeFile.Close()
		w = writeFile
	}

	if config.outputJSON {
		outputFormat = JSON
	} else if config.knownHosts {
		outputFormat = KNOWN_HOSTS
	}

	return writeResult(w, outputFormat, result)
}

func writeResult(w io.Writer, format outputFormat, result *probe.Result) error {
	var line string
	switch format {
	case JSON:
		data := dataEntry{
			Host:          result.Address,
			ServerVersion: result.ServerVersion,
			Algorithms:    result.Algorithms,
			HostKey:       result.HostKey,
		}
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		line = string(jsonData) + "\n"
	case KNOWN_HOSTS:
		line = result.HostKey.KnownHostsLine(result.Address)
	default:
		line = result.HostKey.Line()
	}
	_, err := fmt.Fprint(w, line)
	return err
}
