package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.MediaGen.BaseURL = strings.TrimRight(strings.TrimSpace(c.MediaGen.BaseURL), "/")
	c.Voice.BaseURL = strings.TrimRight(strings.TrimSpace(c.Voice.BaseURL), "/")
	c.LipSync.BaseURL = strings.TrimRight(strings.TrimSpace(c.LipSync.BaseURL), "/")
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Storage.FolderPrefix = strings.Trim(strings.TrimSpace(c.Storage.FolderPrefix), "/")

	return nil
}
