/**
 * Copyright 2026 The IcefloeDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"fmt"
	"io/ioutil"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	// KB - Kilobytes
	KB uint64 = 1024

	// MB - Megabytes
	MB uint64 = 1024 * 1024
)

// StorageConfig defines the configuration settings for the storage layer.
type StorageConfig struct {
	// DbPaths is the set of directories table files may live in.
	// A file descriptor's path id indexes into this list.
	DbPaths []string `yaml:"dbPaths"`

	// TableCacheSize is the max number of open table readers kept in the cache.
	TableCacheSize uint32 `yaml:"tableCacheSize"`

	// MaxAllowedSpace bounds the total bytes of newly written table files.
	// Zero disables the limit.
	MaxAllowedSpace uint64 `yaml:"maxAllowedSpace"`
}

// NewDefaultStorageConfig returns a new default storage configuration.
func NewDefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		DbPaths:        []string{"/var/lib/icefloedb"},
		TableCacheSize: 64,
	}
}

// Validate validates a StorageConfig and returns an error if it's invalid.
func (conf *StorageConfig) Validate() error {
	if len(conf.DbPaths) == 0 {
		return fmt.Errorf("no db paths provided in config")
	}
	for _, p := range conf.DbPaths {
		if p == "" {
			return fmt.Errorf("empty db path provided in config")
		}
	}
	if conf.TableCacheSize == 0 {
		return fmt.Errorf("invalid table cache size provided in config")
	}
	return nil
}

// LoadFromFile loads the config from the file. It assumes that config already has the defaults.
// In the case of an error, it leaves the config untouched.
func (conf *StorageConfig) LoadFromFile(path string) {
	log.Info(fmt.Sprintf("icefloedb::config::LoadFromFile; loading config from file %s", path))
	data, err := ioutil.ReadFile(path)
	if err != nil {
		log.Error(fmt.Sprintf("icefloedb::config::LoadFromFile; error reading config from file %s, error %s", path, err))
		return
	}
	fconf := StorageConfig{}
	err = yaml.Unmarshal(data, &fconf)
	if err != nil {
		log.Error(fmt.Sprintf("icefloedb::config::LoadFromFile; error unmarshalling config from file %s, error %s", path, err))
		return
	}

	log.WithFields(log.Fields{"config": fconf}).Debug("icefloedb::config::LoadFromFile; read contents from the file")

	// populate fields
	if len(fconf.DbPaths) != 0 {
		conf.DbPaths = fconf.DbPaths
	}
	if fconf.TableCacheSize != 0 {
		conf.TableCacheSize = fconf.TableCacheSize
	}
	if fconf.MaxAllowedSpace != 0 {
		conf.MaxAllowedSpace = fconf.MaxAllowedSpace
	}
}
