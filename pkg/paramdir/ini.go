package paramdir

import (
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// LoadDirectoryINI loads initial parameter values from an INI-style
// config file into table, matching section names against directory names
// and key names against parameter names the same way ParseLine's
// "[Section]" / "name = value" grammar does. Built on gopkg.in/ini.v1 the
// way the teacher's pkg/od parses EDS files with NewVariableFromSection.
func LoadDirectoryINI(path string, table *Table) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}

	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}
		dirIdx := IsDirectory(table, name)
		if dirIdx < 0 {
			log.Warnf("[PARAMDIR][INI] unknown directory %q, skipping", name)
			continue
		}
		for _, key := range section.Keys() {
			paramIdx := IsParameter(table, key.Name(), uint8(dirIdx))
			if paramIdx <= 0 {
				log.Warnf("[PARAMDIR][INI] unknown parameter %q in [%s], skipping", key.Name(), name)
				continue
			}
			param := &table.Directories[dirIdx].Parameters[paramIdx]
			value, err := ParseValueFromString(param, key.Value())
			if err != nil {
				log.Warnf("[PARAMDIR][INI] invalid value %q for %q in [%s]: %v", key.Value(), key.Name(), name, err)
				continue
			}
			if err := SetValue(param, value); err != nil {
				log.Warnf("[PARAMDIR][INI] value %q for %q in [%s] out of range: %v", key.Value(), key.Name(), name, err)
			}
		}
	}
	return nil
}
