package rawspec

// Cache keeps the most recently used spectrum file open. Consecutive
// PSMs usually come from the same file, so a single handle suffices.
type Cache struct {
	open   Opener
	path   string
	reader Reader
}

// NewCache returns an empty cache that opens files with open
func NewCache(open Opener) *Cache {
	if open == nil {
		open = OpenMzML
	}
	return &Cache{open: open}
}

// Get returns the reader for path, opening it if it is not the file
// that is currently open
func (c *Cache) Get(path string) (Reader, error) {
	if c.reader != nil && c.path == path {
		return c.reader, nil
	}
	if err := c.Close(); err != nil {
		return nil, err
	}
	r, err := c.open(path)
	if err != nil {
		return nil, err
	}
	c.path = path
	c.reader = r
	return r, nil
}

// Path returns the path of the open file, or "" if none
func (c *Cache) Path() string {
	return c.path
}

// Close closes the open file, if any
func (c *Cache) Close() error {
	if c.reader == nil {
		return nil
	}
	err := c.reader.Close()
	c.reader = nil
	c.path = ""
	return err
}
