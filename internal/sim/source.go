// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"strings"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// source is an external add-data source.
type source struct {
	desc  []string
	units []string
	data  []float32
}

func (src *source) doc(name string) icapi.AddDataDoc {
	doc := icapi.AddDataDoc{
		GroupName: name,
		Desc:      append([]string{}, src.desc...),
		Units:     append([]string{}, src.units...),
		Data:      append([]float32{}, src.data...),
		View:      make([]bool, len(src.data)),
	}
	for i := range doc.View {
		doc.View[i] = true
	}
	return doc
}

// Sources returns the names of the registered add-data sources.
func (srv *Server) Sources() []string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return append([]string{}, srv.order...)
}

func (srv *Server) AddCheck() icapi.Status {
	if srv.nodll {
		return icapi.Error
	}
	return icapi.Ok
}

func (srv *Server) AddCreate(name string) icapi.Status {
	if srv.nodll {
		return icapi.Error
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, dup := srv.srcs[name]; dup || name == "" {
		srv.msg.Printf("could not create add-data source %q", name)
		return icapi.Error
	}
	srv.srcs[name] = &source{}
	srv.order = append(srv.order, name)
	return icapi.Ok
}

func (srv *Server) AddDispose(name string) icapi.Status {
	if srv.nodll {
		return icapi.Error
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.srcs[name]; !ok {
		srv.msg.Printf("no add-data source %q", name)
		return icapi.Error
	}
	delete(srv.srcs, name)
	for i, v := range srv.order {
		if v == name {
			srv.order = append(srv.order[:i], srv.order[i+1:]...)
			break
		}
	}
	return icapi.Ok
}

func (srv *Server) update(name string, f func(src *source)) icapi.Status {
	if srv.nodll {
		return icapi.Error
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	src, ok := srv.srcs[name]
	if !ok {
		srv.msg.Printf("no add-data source %q", name)
		return icapi.Error
	}
	f(src)
	return icapi.Ok
}

func (srv *Server) AddSetData(name string, data []float32) icapi.Status {
	return srv.update(name, func(src *source) {
		src.data = append(src.data[:0], data...)
	})
}

func (srv *Server) AddSetDescription(name string, desc *lv.Handle) icapi.Status {
	if desc == nil || desc.Kind() != lv.StringRef {
		return icapi.Error
	}
	vs := desc.Strings()
	return srv.update(name, func(src *source) { src.desc = vs })
}

func (srv *Server) AddSetDescriptionAsByte(name string, desc []byte) icapi.Status {
	vs := splitText(desc)
	return srv.update(name, func(src *source) { src.desc = vs })
}

func (srv *Server) AddSetUnit(name string, units *lv.Handle) icapi.Status {
	if units == nil || units.Kind() != lv.StringRef {
		return icapi.Error
	}
	vs := units.Strings()
	return srv.update(name, func(src *source) { src.units = vs })
}

func (srv *Server) AddSetUnitAsByte(name string, units []byte) icapi.Status {
	vs := splitText(units)
	return srv.update(name, func(src *source) { src.units = vs })
}

func splitText(buf []byte) []string {
	txt := lv.DecodeFixed(buf, len(buf))
	if txt == "" {
		return []string{}
	}
	return strings.Split(txt, string(icapi.ByteSep))
}
