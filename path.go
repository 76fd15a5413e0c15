package tdms

import "strings"

// parsePath splits a canonical TDMS object path into its group and channel
// components. Each component is wrapped in single quotes, with embedded
// single quotes doubled (`it''s` for a literal `it's`). The root object has
// path "/" and splits to ("", ""); a group has path `/'group'` and splits to
// ("group", ""); a channel has path `/'group'/'channel'` and splits to
// ("group", "channel").
func parsePath(path string) (groupName, channelName string, err error) {
	if path == "" || path[0] != '/' {
		return "", "", ErrInvalidPath
	}

	components := make([]string, 0, 2)

	i := 1
	for i < len(path) {
		if path[i] != '\'' {
			return "", "", ErrInvalidPath
		}
		i++

		var component strings.Builder
		closed := false
		for i < len(path) {
			c := path[i]
			if c == '\'' {
				if i+1 < len(path) && path[i+1] == '\'' {
					component.WriteByte('\'')
					i += 2
					continue
				}
				closed = true
				i++
				break
			}
			component.WriteByte(c)
			i++
		}

		if !closed {
			return "", "", ErrInvalidPath
		}

		components = append(components, component.String())

		if i < len(path) {
			if path[i] != '/' {
				return "", "", ErrInvalidPath
			}
			i++
		}
	}

	if len(components) > 2 {
		return "", "", ErrInvalidPath
	}

	if len(components) > 0 {
		groupName = components[0]
	}
	if len(components) > 1 {
		channelName = components[1]
	}

	return groupName, channelName, nil
}

// quotePathComponent escapes a group or channel name for embedding inside a
// canonical object path, doubling any embedded single quotes.
func quotePathComponent(name string) string {
	return strings.ReplaceAll(name, "'", "''")
}

// buildPath constructs the canonical object path for the root object
// (groupName == ""), a group (channelName == ""), or a channel.
func buildPath(groupName, channelName string) string {
	if groupName == "" {
		return "/"
	}

	var sb strings.Builder
	sb.WriteString("/'")
	sb.WriteString(quotePathComponent(groupName))
	sb.WriteString("'")

	if channelName != "" {
		sb.WriteString("/'")
		sb.WriteString(quotePathComponent(channelName))
		sb.WriteString("'")
	}

	return sb.String()
}
