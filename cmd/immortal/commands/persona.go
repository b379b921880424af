package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/immortal-app/immortal/pkg/persona"
)

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage personas",
}

var personaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored personas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		all, err := store.List()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("no personas yet; try `immortal persona create --name \"Grandma Rose\"`")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tRELATIONSHIP\tUPDATED")
		for _, d := range all {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				shortID(d.ID), d.Name, d.Relationship, d.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var personaShowCmd = &cobra.Command{
	Use:   "show <persona>",
	Short: "Show one persona and the instructions built from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		d, err := store.Resolve(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(d)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		fmt.Println("---")
		fmt.Println(persona.BuildInstructions(d))
		return nil
	},
}

var (
	createName         string
	createRelationship string
	createTraits       []string
	createVoice        string
	createMemories     []string
	createInstructions string
)

var personaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a persona",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		d := &persona.Descriptor{
			Name:         createName,
			Relationship: createRelationship,
			Traits:       createTraits,
			VoiceStyle:   createVoice,
			Memories:     createMemories,
			Instructions: createInstructions,
		}
		if err := store.Save(d); err != nil {
			return err
		}
		fmt.Printf("created %s (%s)\n", d.Name, shortID(d.ID))
		return nil
	},
}

var personaImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import a persona from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		d, err := persona.FromFile(args[0])
		if err != nil {
			return err
		}
		if err := store.Save(d); err != nil {
			return err
		}
		fmt.Printf("imported %s (%s)\n", d.Name, shortID(d.ID))
		return nil
	},
}

var exportOut string

var personaExportCmd = &cobra.Command{
	Use:   "export <persona>",
	Short: "Export a persona as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		d, err := store.Resolve(args[0])
		if err != nil {
			return err
		}
		if exportOut != "" {
			if err := persona.ToFile(exportOut, d); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", exportOut)
			return nil
		}
		data, err := yaml.Marshal(d)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var personaDeleteCmd = &cobra.Command{
	Use:   "delete <persona>",
	Short: "Delete a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		d, err := store.Resolve(args[0])
		if err != nil {
			return err
		}
		if err := store.Delete(d.ID); err != nil {
			return err
		}
		fmt.Printf("deleted %s (%s)\n", d.Name, shortID(d.ID))
		return nil
	},
}

func init() {
	personaCreateCmd.Flags().StringVar(&createName, "name", "", "persona name (required)")
	personaCreateCmd.Flags().StringVar(&createRelationship, "relationship", "", "who they are to you, e.g. \"grandmother\"")
	personaCreateCmd.Flags().StringArrayVar(&createTraits, "trait", nil, "personality trait (repeatable)")
	personaCreateCmd.Flags().StringVar(&createVoice, "voice", "", "how they speak")
	personaCreateCmd.Flags().StringArrayVar(&createMemories, "memory", nil, "shared memory (repeatable)")
	personaCreateCmd.Flags().StringVar(&createInstructions, "instructions", "", "extra free-form instructions")
	personaCreateCmd.MarkFlagRequired("name")

	personaExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")

	personaCmd.AddCommand(personaListCmd, personaShowCmd, personaCreateCmd,
		personaImportCmd, personaExportCmd, personaDeleteCmd)
	rootCmd.AddCommand(personaCmd)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
