package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/themehub/internal/themes"
)

func (c *cli) setThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-theme <bucket> <folder>",
		Short: "Copy a theme folder into the live current folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.svc.SetTheme(cmd.Context(), args[0], args[1])
			if perr := c.print(cmd, res); perr != nil {
				return perr
			}
			return err
		},
	}
}

func (c *cli) detailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <bucket>",
		Short: "Show the current theme and swap history of a website",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.svc.Details(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, rec)
		},
	}
}

func (c *cli) pagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages <bucket>",
		Short: "List theme folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := c.svc.Pages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, pages)
		},
	}
}

func (c *cli) folderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folder <bucket> <folder>",
		Short: "List the files and subfolders of one theme folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.svc.Folder(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return c.print(cmd, l)
		},
	}
}

func (c *cli) mediaCmd() *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "media <bucket>",
		Short: "List objects under the root, or directly under --location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				files []themes.File
				err   error
			)
			if location == "" {
				files, err = c.svc.Media(cmd.Context(), args[0])
			} else {
				files, err = c.svc.List(cmd.Context(), args[0], location)
			}
			if err != nil {
				return err
			}
			return c.print(cmd, files)
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "folder path in the bucket to list without recursion")
	return cmd
}

func (c *cli) createFolderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-folder <bucket> <folder>",
		Short: "Create an empty theme folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.svc.CreateFolder(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "created %s\n", args[1])
			return nil
		},
	}
}

func (c *cli) deleteFolderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-folder <bucket> <folder>",
		Short: "Delete a theme folder and everything in it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.svc.DeleteFolder(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted %d object(s) from %s\n", n, args[1])
			return nil
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <bucket> <folder> <file>...",
		Short: "Upload local files into a theme folder",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args[2:] {
				key, err := c.upload(cmd, args[0], args[1], path)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func (c *cli) upload(cmd *cobra.Command, bucket, folder, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.svc.Upload(cmd.Context(), bucket, folder, filepath.Base(path), f, mime.TypeByExtension(filepath.Ext(path)))
}

func (c *cli) deleteFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-file <bucket> <folder> <file>",
		Short: "Delete one file from a theme folder",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.svc.DeleteFile(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted %s\n", args[2])
			return nil
		},
	}
}
