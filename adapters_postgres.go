//go:build postgres || all_adapters

package main

import _ "github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource/postgres"
