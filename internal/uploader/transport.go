// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package uploader

import (
	"crypto/tls"
	"net/http"
)

// insecureTransport is used when verify_ssl is false: the uploader still
// needs a concrete *http.Transport to set InsecureSkipVerify on, rather
// than leaving http.DefaultTransport mutated for the whole process.
func insecureTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return t
}
