/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package configstore

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed factory_defaults.yaml
var factoryDefaultsYAML []byte

// FactoryDefaults parses the embedded factory_defaults.yaml document
// into a ConfigRecord. It is used both when both flash slots are
// invalid at boot and by an explicit factory reset.
func FactoryDefaults() (ConfigRecord, error) {
	var rec ConfigRecord
	if err := yaml.Unmarshal(factoryDefaultsYAML, &rec); err != nil {
		return ConfigRecord{}, fmt.Errorf("configstore: parsing factory defaults: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return ConfigRecord{}, fmt.Errorf("configstore: factory defaults failed validation: %w", err)
	}
	return rec, nil
}
