//go:build bigquery || all_adapters

package main

import _ "github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource/bigquery"
