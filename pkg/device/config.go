// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kestrel-vision/kestrel/pkg/mlsched"
)

// LinkConfig describes one host link of a simulated device.
type LinkConfig struct {
	// Type is "serial" or "tcp".
	Type string `json:"type" yaml:"type" toml:"type"`
	// Device is the serial device path for serial links.
	Device string `json:"device,omitempty" yaml:"device,omitempty" toml:"device,omitempty"`
	Baud   int    `json:"baud,omitempty" yaml:"baud,omitempty" toml:"baud,omitempty"`
	// Listen is the TCP listen address for tcp links.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty" toml:"listen,omitempty"`
}

// NetworkConfig describes one network to register at boot.
type NetworkConfig struct {
	ID uint32 `json:"id" yaml:"id" toml:"id"`
	// Internal marks a network using engine-internal IO buffers.
	Internal    bool   `json:"internal,omitempty" yaml:"internal,omitempty" toml:"internal,omitempty"`
	InOutOffset uint32 `json:"inout_offset,omitempty" yaml:"inout_offset,omitempty" toml:"inout_offset,omitempty"`
	InOutSize   uint32 `json:"inout_size,omitempty" yaml:"inout_size,omitempty" toml:"inout_size,omitempty"`
}

// CameraConfig is the image source geometry.
type CameraConfig struct {
	Width     uint16 `json:"width" yaml:"width" toml:"width"`
	Height    uint16 `json:"height" yaml:"height" toml:"height"`
	Format    uint32 `json:"format" yaml:"format" toml:"format"`
	Autostart bool   `json:"autostart" yaml:"autostart" toml:"autostart"`
}

// Config is the boot-time device description.
type Config struct {
	RAMBase     uint32 `json:"ram_base" yaml:"ram_base" toml:"ram_base"`
	RAMSize     uint32 `json:"ram_size" yaml:"ram_size" toml:"ram_size"`
	RegFileSize uint32 `json:"reg_file_size" yaml:"reg_file_size" toml:"reg_file_size"`

	CodePoolOffset uint32 `json:"code_pool_offset" yaml:"code_pool_offset" toml:"code_pool_offset"`
	CodePoolSize   uint32 `json:"code_pool_size" yaml:"code_pool_size" toml:"code_pool_size"`
	IOPoolOffset   uint32 `json:"io_pool_offset" yaml:"io_pool_offset" toml:"io_pool_offset"`
	IOPoolSize     uint32 `json:"io_pool_size" yaml:"io_pool_size" toml:"io_pool_size"`

	ImageOffset uint32 `json:"image_offset" yaml:"image_offset" toml:"image_offset"`
	ImageSize   uint32 `json:"image_size" yaml:"image_size" toml:"image_size"`

	Links    []LinkConfig    `json:"links" yaml:"links" toml:"links"`
	Networks []NetworkConfig `json:"networks" yaml:"networks" toml:"networks"`
	Camera   CameraConfig    `json:"camera" yaml:"camera" toml:"camera"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
}

// Default returns the reference geometry: 1 MiB of RAM at 0x8000_0000 with a
// 256 KiB code pool, a 64 KiB IO pool and a QVGA grayscale image buffer.
func Default() Config {
	return Config{
		RAMBase:        0x8000_0000,
		RAMSize:        1 << 20,
		RegFileSize:    0x100,
		CodePoolOffset: 0x0,
		CodePoolSize:   0x4_0000,
		IOPoolOffset:   0x4_0000,
		IOPoolSize:     0x1_0000,
		ImageOffset:    0x5_0000,
		ImageSize:      320 * 240,
		Camera:         CameraConfig{Width: 320, Height: 240, Format: 1, Autostart: true},
		LogLevel:       "info",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// region checks that [off, off+size) sits inside the RAM image.
func (c Config) region(name string, off, size uint32) error {
	if size == 0 {
		return fmt.Errorf("config: %s has zero size", name)
	}
	if off > c.RAMSize || size > c.RAMSize-off {
		return fmt.Errorf("config: %s [0x%X+0x%X] outside RAM of 0x%X bytes", name, off, size, c.RAMSize)
	}
	return nil
}

// Validate rejects geometry the device cannot boot with.
func (c Config) Validate() error {
	if c.RAMSize == 0 {
		return fmt.Errorf("config: ram_size is zero")
	}
	if err := c.region("code pool", c.CodePoolOffset, c.CodePoolSize); err != nil {
		return err
	}
	if err := c.region("io pool", c.IOPoolOffset, c.IOPoolSize); err != nil {
		return err
	}
	if err := c.region("image buffer", c.ImageOffset, c.ImageSize); err != nil {
		return err
	}
	if len(c.Networks) > mlsched.MaxNetworks {
		return fmt.Errorf("config: %d networks exceeds the supported %d", len(c.Networks), mlsched.MaxNetworks)
	}
	for i, l := range c.Links {
		switch l.Type {
		case "serial":
			if l.Device == "" {
				return fmt.Errorf("config: links[%d]: serial link without a device", i)
			}
		case "tcp":
			if l.Listen == "" {
				return fmt.Errorf("config: links[%d]: tcp link without a listen address", i)
			}
		default:
			return fmt.Errorf("config: links[%d]: unknown link type %q", i, l.Type)
		}
	}
	return nil
}

// Pools translates the pool offsets to the absolute geometry the scheduler
// takes.
func (c Config) Pools() mlsched.Config {
	return mlsched.Config{
		CodeBase: c.RAMBase + c.CodePoolOffset,
		CodeSize: c.CodePoolSize,
		IOBase:   c.RAMBase + c.IOPoolOffset,
		IOSize:   c.IOPoolSize,
	}
}

// Descs translates the network entries to scheduler descriptors.
func (c Config) Descs() []mlsched.NetworkDesc {
	descs := make([]mlsched.NetworkDesc, 0, len(c.Networks))
	for _, n := range c.Networks {
		d := mlsched.NetworkDesc{ID: n.ID, InOutOffset: n.InOutOffset, InOutSize: n.InOutSize}
		if n.Internal {
			d.InOutOffset = mlsched.UsingInternalBuffers
			d.InOutSize = 0
		}
		descs = append(descs, d)
	}
	return descs
}
