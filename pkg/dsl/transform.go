package dsl

import (
	"fmt"
	"strconv"
	"strings"
)

type headTransform func(n *Node) (Command, error)

type modifierTransform func(n *Node, cmd *Command) error

var headTransforms = map[string]headTransform{
	"play": func(n *Node) (Command, error) {
		cmd := Command{Action: ActionPlay, Kind: kindOf(n.Tokens[0]), Target: n.Tokens[1].Text}
		applyContext(n, &cmd)
		return cmd, nil
	},
	"pause":  actionOnly(ActionPause),
	"resume": actionOnly(ActionResume),
	"skip": func(n *Node) (Command, error) {
		count := 1
		if len(n.Tokens) > 0 {
			v, err := strconv.Atoi(n.Tokens[0].Text)
			if err != nil {
				return Command{}, err
			}
			count = v
		}
		return Command{Action: ActionSkip, N: &count}, nil
	},
	"seek": func(n *Node) (Command, error) {
		pos, err := strconv.ParseFloat(n.Tokens[0].Text, 64)
		if err != nil {
			return Command{}, err
		}
		return Command{Action: ActionSeek, PositionSeconds: &pos}, nil
	},
	"queue": func(n *Node) (Command, error) {
		return Command{Action: ActionQueue, Kind: kindOf(n.Tokens[0]), Targets: texts(n.Tokens[1:])}, nil
	},
	"library_add":    libraryMutation(ActionLibraryAdd),
	"library_remove": libraryMutation(ActionLibraryRemove),
	"library_create": func(n *Node) (Command, error) {
		return Command{Action: ActionLibraryCreate, Kind: KindPlaylist, Target: n.Tokens[0].Text}, nil
	},
	"library_delete": func(n *Node) (Command, error) {
		return Command{Action: ActionLibraryDelete, Kind: KindPlaylist, Target: n.Tokens[0].Text}, nil
	},
	"search": func(n *Node) (Command, error) {
		return Command{Query: QuerySearch, Kind: kindOf(n.Tokens[0]), Terms: texts(n.Tokens[1:])}, nil
	},
	"info": func(n *Node) (Command, error) {
		return Command{Query: QueryInfo, Kind: kindOf(n.Tokens[0]), Target: n.Tokens[1].Text}, nil
	},
	"recommend": func(n *Node) (Command, error) {
		cmd := Command{Query: QueryRecommend, Kind: kindOf(n.Tokens[0])}
		if len(n.Tokens) > 1 {
			v, err := strconv.Atoi(n.Tokens[1].Text)
			if err != nil {
				return Command{}, err
			}
			cmd.N = &v
		}
		applyContext(n, &cmd)
		return cmd, nil
	},
	"status": func(*Node) (Command, error) {
		return Command{Query: QueryStatus}, nil
	},
	"library_list": func(n *Node) (Command, error) {
		return Command{Query: QueryLibraryList, Kind: kindOf(n.Tokens[0])}, nil
	},
}

var modifierTransforms = map[string]modifierTransform{
	"volume": func(n *Node, cmd *Command) error {
		return setInt(&cmd.Volume, n)
	},
	"volume_rel": func(n *Node, cmd *Command) error {
		return setInt(&cmd.VolumeRel, n)
	},
	"mode": func(n *Node, cmd *Command) error {
		cmd.Mode = strings.ToLower(n.Tokens[0].Text)
		return nil
	},
	"device": func(n *Node, cmd *Command) error {
		cmd.Device = n.Tokens[0].Text
		return nil
	},
	"limit": func(n *Node, cmd *Command) error {
		return setInt(&cmd.Limit, n)
	},
	"offset": func(n *Node, cmd *Command) error {
		return setInt(&cmd.Offset, n)
	},
}

// Transform builds a Command from a parse tree. A tree with no head
// becomes a "set" action carrying only its modifiers. Repeated
// modifiers overwrite earlier ones.
func Transform(tree *Tree) (Command, error) {
	cmd := Command{Action: ActionSet}
	if tree.Head != nil {
		build, ok := headTransforms[tree.Head.Rule]
		if !ok {
			return Command{}, fmt.Errorf("no transform for rule %q", tree.Head.Rule)
		}
		var err error
		cmd, err = build(tree.Head)
		if err != nil {
			return Command{}, fmt.Errorf("%s: %w", tree.Head.Rule, err)
		}
	}
	for _, mod := range tree.Modifiers {
		apply, ok := modifierTransforms[mod.Rule]
		if !ok {
			return Command{}, fmt.Errorf("no transform for modifier %q", mod.Rule)
		}
		if err := apply(mod, &cmd); err != nil {
			return Command{}, fmt.Errorf("%s: %w", mod.Rule, err)
		}
	}
	return cmd, nil
}

func actionOnly(action string) headTransform {
	return func(*Node) (Command, error) {
		return Command{Action: action}, nil
	}
}

func libraryMutation(action string) headTransform {
	return func(n *Node) (Command, error) {
		cmd := Command{Action: action, Kind: kindOf(n.Tokens[0]), Targets: texts(n.Tokens[1:])}
		applyContext(n, &cmd)
		return cmd, nil
	}
}

func applyContext(n *Node, cmd *Command) {
	ctx := n.Child("context")
	if ctx == nil {
		return
	}
	cmd.ContextKind = kindOf(ctx.Tokens[0])
	cmd.Context = ctx.Tokens[1].Text
}

func kindOf(tok Token) Kind {
	kind, _ := ParseKind(tok.Text)
	return kind
}

func texts(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Text)
	}
	return out
}

func setInt(dst **int, n *Node) error {
	v, err := strconv.Atoi(n.Tokens[0].Text)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}
