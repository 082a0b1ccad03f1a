//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads the YAML configuration seeding persistence
// factories: which data model to serve and where its AAS and submodel
// repositories live.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence/basyx"
)

// Config is one data model endpoint tuple.
type Config struct {
	DataModelName string `yaml:"dataModelName"`
	AASHost       string `yaml:"aasHost"`
	AASPort       int    `yaml:"aasPort"`
	SubmodelHost  string `yaml:"submodelHost"`
	SubmodelPort  int    `yaml:"submodelPort"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse parses YAML config bytes.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.DataModelName == "" {
		return nil, fmt.Errorf("config: dataModelName is required")
	}
	return &c, nil
}

// AASBaseURL returns the shell repository base URL.
func (c *Config) AASBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.AASHost, c.AASPort)
}

// SubmodelBaseURL returns the submodel repository base URL.
func (c *Config) SubmodelBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.SubmodelHost, c.SubmodelPort)
}

// Apply registers a basyx persistence factory for the configured data model
// on the registry.
func (c *Config) Apply(registry *persistence.Registry, opts ...basyx.Option) {
	registry.AddFactory(
		connection.ForDataModel(c.DataModelName),
		basyx.Factory(c.AASBaseURL(), c.SubmodelBaseURL(), opts...),
	)
}
