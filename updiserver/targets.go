package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/BertoldVdb/updiprog/updiserver/api"
	"github.com/BertoldVdb/updiprog/updiserver/config"
)

type mountedTarget struct {
	name   string
	target api.Target
}

// parseTargetArg accepts "name=path" or a bare path, which is named after
// its index.
func parseTargetArg(arg string, index int) config.TargetConfig {
	if kv := strings.SplitN(arg, "=", 2); len(kv) == 2 && !strings.Contains(kv[0], ":") {
		return config.TargetConfig{Name: kv[0], Path: kv[1]}
	}
	return config.TargetConfig{Name: "updi" + strconv.Itoa(index), Path: arg}
}

// buildMux mounts every target by name and by index and serves the list of
// names on the root.
func buildMux(targets []mountedTarget, logOut func(format string, v ...interface{})) (*http.ServeMux, error) {
	var mux http.ServeMux
	names := make([]string, 0, len(targets))

	for i, m := range targets {
		handler := api.New(m.name, m.target)

		logOut(" -> Registering as '%s' and '%d'", m.name, i)
		mux.Handle("/"+m.name+"/", http.StripPrefix("/"+m.name, handler))
		mux.Handle("/"+strconv.Itoa(i)+"/", http.StripPrefix("/"+strconv.Itoa(i), handler))

		names = append(names, m.name)
	}

	namesJSON, err := json.MarshalIndent(&names, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode target list: %w", err)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(namesJSON)
	})

	return &mux, nil
}
